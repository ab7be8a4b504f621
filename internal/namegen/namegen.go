// Package namegen produces readable default display names.
package namegen

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
)

var adjectives = []string{
	"dapper", "jolly", "keen", "clever", "bold", "wise", "gallant", "stalwart",
	"intrepid", "valiant", "earnest", "sprightly", "hale", "robust", "jaunty", "plucky",
	"bonny", "dashing", "stout", "resolute", "steadfast", "vigilant", "mirthful", "sanguine",
	"blithe", "jovial", "genial", "affable", "prudent", "sagacious", "wily", "canny",
	"astute", "dauntless", "undaunted", "comely", "winsome", "droll", "whimsical", "fanciful",
	"industrious", "diligent", "urbane", "refined", "courteous", "genteel", "spirited", "animated",
	"vivacious", "formidable", "redoubtable", "singular", "peculiar", "quaint", "ardent", "fervent",
	"hearty", "merry", "noble", "bright", "brisk", "capable", "worthy", "able",
}

var nouns = []string{
	"panda", "tiger", "eagle", "dolphin", "falcon", "turtle", "penguin", "raccoon",
	"otter", "badger", "raven", "lynx", "beaver", "coyote", "gecko", "hamster",
	"iguana", "jaguar", "koala", "lemur", "monkey", "narwhal", "owl", "parrot",
	"quail", "rabbit", "salmon", "toucan", "unicorn", "viper", "walrus", "yak",
	"zebra", "alpaca", "bison", "camel", "dragonfly", "elephant", "flamingo", "giraffe",
	"hedgehog", "ibex", "jellyfish", "kangaroo", "llama", "meerkat", "nautilus", "octopus",
	"platypus", "quokka", "starfish", "tapir", "urchin", "vulture", "wombat", "axolotl",
	"butterfly", "chameleon", "firefly", "hummingbird", "mantis", "peacock", "seahorse", "sparrow",
}

// Generate returns a random "adjective-noun" name.
func Generate() (string, error) {
	return GenerateFrom(rand.Reader)
}

// GenerateFrom is Generate with an explicit randomness source.
func GenerateFrom(r io.Reader) (string, error) {
	adj, err := pick(r, adjectives)
	if err != nil {
		return "", err
	}
	noun, err := pick(r, nouns)
	if err != nil {
		return "", err
	}
	return adj + "-" + noun, nil
}

func pick(r io.Reader, words []string) (string, error) {
	n, err := rand.Int(r, big.NewInt(int64(len(words))))
	if err != nil {
		return "", fmt.Errorf("pick word: %w", err)
	}
	return words[n.Int64()], nil
}
