package main

import "github.com/TechinMama/RecipeForADisaster/cmd"

func main() {
	cmd.Execute()
}
