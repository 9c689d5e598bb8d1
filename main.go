package main

import "github.com/jmehdipour/staffing-awards/cmd"

func main() {
	cmd.Execute()
}
