// Command attrib scores nucleotide sequences with a trained model and
// stores per-base attribution maps.
package main

func main() {
	Execute()
}
