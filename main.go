package main

import "thoreinstein.com/shist/cmd"

func main() {
	cmd.Execute()
}
