package main

import "postmark-backend/internal/app"

func main() {
	app.Execute()
}
