package usecase

import "fmt"

// PromptBuilder turns a decoded patient message into a model prompt
type PromptBuilder func(message string) string

const doctorPromptTemplate = `You are the front-desk assistant of %s. You help patients book, reschedule and cancel appointments and answer questions about opening hours.
Answer in one short plain-text sentence of at most 120 characters, without emojis or markdown, because your reply is transmitted as an audio tone.
If the request is unclear, ask one short clarifying question.

Patient message: %s`

// NewDoctorPrompt returns a PromptBuilder for the named practice
func NewDoctorPrompt(practice string) PromptBuilder {
	if practice == "" {
		practice = "a doctor's office"
	}
	return func(message string) string {
		return fmt.Sprintf(doctorPromptTemplate, practice, message)
	}
}

// DoctorPrompt is the PromptBuilder for an unnamed practice
var DoctorPrompt = NewDoctorPrompt("")
