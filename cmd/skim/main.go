// Skim - cloud waste detection engine.
// Scan. Evaluate. Reconcile.
package main

func main() {
	Execute()
}
