package domain

import "math/rand/v2"

var (
	adjectives = []string{
		"Brisk", "Curious", "Dapper", "Eager", "Fuzzy", "Gentle", "Hasty",
		"Jolly", "Lucky", "Mellow", "Nimble", "Plucky", "Quiet", "Rusty",
		"Sleepy", "Tidy", "Witty",
	}
	nouns = []string{
		"Badger", "Cactus", "Falcon", "Ferret", "Kettle", "Lantern", "Maple",
		"Otter", "Parrot", "Pebble", "Radish", "Sparrow", "Teapot", "Walrus",
		"Willow", "Yak",
	}
)

// GenerateName returns a random display name such as "PluckyOtter".
func GenerateName() string {
	return adjectives[rand.IntN(len(adjectives))] + nouns[rand.IntN(len(nouns))]
}
