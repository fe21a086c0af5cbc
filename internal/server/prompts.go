package server

import "fmt"

const (
	blogPrompt = "Generate a markdown tutorial using the following transcript. " +
		"Return just the blog article markdown directly without any leading or introductory sentences"

	fluencyPrompt = `Analyze the provided transcript for the frequency and types of filler words used by the speaker (e.g., "um," "uh," "like," "you know"). Additionally:
Identify patterns or situations where filler words are most frequently used (e.g., during transitions, pauses, or when explaining complex ideas).
Provide constructive suggestions to help the speaker reduce filler words, such as techniques for improving confidence, pacing, or preparation.
Offer a brief review of the speaker's overall communication skills, including strengths and areas for improvement.
Rate the speaker's speech delivery on a scale of 1 to 10, considering clarity, engagement, and professionalism. Return your response in a markdown format. Return just your analysis directly without any leading or introductory sentences`

	topicsPrompt = "Help me improve my speaking fluency by generating 5 random and engaging topics for a 1-minute speech. " +
		"The topics should be diverse and thought-provoking to help me practice effectively."
)

func translatePrompt(sourceCode, target string) string {
	return fmt.Sprintf("This is a %s text. Provide the %s translation of this text. "+
		"Return just your translation text directly without any leading or introductory sentences", sourceCode, target)
}

func subtitlePrompt(sourceCode, targetName, srt string) string {
	return fmt.Sprintf("This is a %s subtitle text. I am a native speaker of %s, please provide the translation of the subtitle texts:\n\n%s. "+
		"Return just your translation text directly without any leading or introductory sentences. "+
		"If you can't just say [Language not supported]", sourceCode, targetName, srt)
}
