package main

import "github.com/dbsmedya/shapecat/cmd/shapecat/cmd"

func main() {
	cmd.Execute()
}
