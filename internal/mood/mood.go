package mood

import (
	"context"
	"strings"
)

type Mood string

const (
	Happy     Mood = "happy"
	Sad       Mood = "sad"
	Flirty    Mood = "flirty"
	Angry     Mood = "angry"
	Neutral   Mood = "neutral"
	Fearful   Mood = "fearful"
	Surprised Mood = "surprised"
	Disgusted Mood = "disgusted"
	Joyful    Mood = "joyful"
)

type keywordRule struct {
	mood     Mood
	keywords []string
}

// Checked in order, the first rule with a matching keyword wins.
var keywordRules = []keywordRule{
	{Flirty, []string{"flirt", "love", "crush", "charming", "amazing", "attractive", "romantic", "adore", "sweetheart"}},
	{Angry, []string{"angry", "furious", "mad", "annoyed", "pissed off", "irritated", "rage", "frustrated", "upset", "outraged"}},
	{Sad, []string{"sad", "depressed", "down", "unhappy", "crying", "heartbroken", "miserable", "sorrowful", "gloomy"}},
	{Fearful, []string{"scared", "afraid", "fear", "terrified", "nervous", "anxious", "frightened", "panicked", "worried"}},
	{Surprised, []string{"surprised", "amazed", "astonished", "shocked", "stunned", "startled", "speechless"}},
	{Disgusted, []string{"disgusted", "revolted", "sick", "nauseated", "repulsed", "appalled", "disturbed"}},
	{Joyful, []string{"joyful", "happy", "elated", "glad", "delighted", "ecstatic", "thrilled", "cheerful", "excited", "content"}},
	{Neutral, []string{"okay", "alright", "fine", "neutral", "indifferent", "meh", "so-so"}},
}

// Analyze matches lowercase substrings, so "mad" also fires on "made".
func Analyze(text string) Mood {
	lower := strings.ToLower(text)
	for _, r := range keywordRules {
		for _, k := range r.keywords {
			if strings.Contains(lower, k) {
				return r.mood
			}
		}
	}
	return Neutral
}

// Known reports whether m is one of the moods with a built-in prompt.
func Known(m Mood) bool {
	_, ok := defaultPrompts[m]
	return ok
}

type Classifier interface {
	Classify(ctx context.Context, text string) (Mood, error)
}

type KeywordClassifier struct{}

func (KeywordClassifier) Classify(_ context.Context, text string) (Mood, error) {
	return Analyze(text), nil
}
