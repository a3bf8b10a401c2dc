package token

import (
	"crypto/rand"
	"math/big"
)

var (
	adjectives = []string{
		"Amber", "Brave", "Calm", "Clever", "Crimson", "Eager", "Gentle", "Golden",
		"Happy", "Jolly", "Kind", "Lively", "Lucky", "Mellow", "Nimble", "Proud",
		"Quiet", "Rapid", "Silver", "Swift", "Tidy", "Witty", "Zesty", "Bold",
	}
	nouns = []string{
		"Badger", "Comet", "Falcon", "Forest", "Harbor", "Island", "Lantern", "Meadow",
		"Otter", "Panda", "Pebble", "Raven", "River", "Rocket", "Summit", "Tiger",
		"Valley", "Walrus", "Willow", "Zebra", "Canyon", "Glacier", "Maple", "Orchid",
	}
)

// NewPhrase returns an anti-phishing phrase shown both in the app and in the
// delivered message so the user can match them.
func NewPhrase() (string, error) {
	a, err := pick(adjectives)
	if err != nil {
		return "", err
	}
	n, err := pick(nouns)
	if err != nil {
		return "", err
	}
	return a + " " + n, nil
}

func pick(words []string) (string, error) {
	i, err := rand.Int(rand.Reader, big.NewInt(int64(len(words))))
	if err != nil {
		return "", err
	}
	return words[i.Int64()], nil
}
