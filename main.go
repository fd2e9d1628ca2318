package main

import "github.com/stewardlog/incident-service-go/cmd"

func main() {
	cmd.Execute()
}
