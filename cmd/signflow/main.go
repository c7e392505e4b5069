// Command signflow serves real-time sign language recognition to a websocket
// client, or runs it locally against a webcam.
package main

func main() {
	Execute()
}
