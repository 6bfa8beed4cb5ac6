package main

import "github.com/andresmejia3/skintone/cmd"

func main() {
	cmd.Execute()
}
