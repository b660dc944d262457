package main

import "github.com/RyanBlaney/genre-sonar/cmd"

func main() {
	cmd.Execute()
}
