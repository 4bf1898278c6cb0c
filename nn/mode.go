package nn

import "math/rand"

// Training reports whether the network is in training mode.
func (n *Network) Training() bool { return n.training }

// SetTraining switches between training and evaluation mode. Only dropout
// behaves differently between the two.
func (n *Network) SetTraining(on bool) { n.training = on }

func (n *Network) random() *rand.Rand {
	if n.rng == nil {
		n.rng = rand.New(rand.NewSource(1))
	}
	return n.rng
}
