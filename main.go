package main

import (
	"db-portal/cmd"
)

func main() {
	cmd.Execute()
}
