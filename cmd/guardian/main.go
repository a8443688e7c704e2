// Guardian listens for infant crying and escalates to a caregiver.
//
// Usage:
//
//	guardian serve [--config guardian.yaml] [--addr :8080]
//	guardian predict clip.wav [--source nursery]
//	guardian lullaby a sleepy little star [-o story.wav] [--save]
//	guardian config
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
