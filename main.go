package main

import "github.com/adamgarcia4/goLearning/gateway/cmd"

func main() {
	cmd.Execute()
}
