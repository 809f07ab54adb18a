// Minimal entry point that delegates CLI handling to the cobra root command.
package main

func main() {
	Execute()
}
