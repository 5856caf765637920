/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/moamenhredeen/oasplugin/cmd"

func main() {
	cmd.Execute()
}
