package main

import "github.com/nsxzhou1114/campus-api/cmd"

func main() {
	cmd.Execute()
}
