package voice

import (
	"github.com/twilio/twilio-go/twiml"

	"github.com/callsense/callsense/internal/orchestrator"
)

// fallbackTwiML is served when a reply cannot be rendered at all.
const fallbackTwiML = `<?xml version="1.0" encoding="UTF-8"?>` +
	`<Response><Say voice="alice" language="en-US">We encountered an error. Please try your call again later.</Say><Hangup/></Response>`

// Script renders orchestrator replies as TwiML.
type Script struct {
	Voice    string
	Language string
	// Action is where the gateway posts the next speech result.
	Action string
}

// DefaultScript speaks with the alice voice in US English.
func DefaultScript() Script {
	return Script{Voice: "alice", Language: "en-US", Action: "/voice/respond"}
}

// Render builds the document: say, then either hang up or pause and gather
// speech for the next turn.
func (s Script) Render(reply orchestrator.Reply) (string, error) {
	verbs := []twiml.Element{
		&twiml.VoiceSay{Message: reply.Say, Voice: s.Voice, Language: s.Language},
	}

	if reply.Then == orchestrator.ActionHangup {
		verbs = append(verbs, &twiml.VoiceHangup{})
	} else {
		verbs = append(verbs,
			&twiml.VoicePause{Length: "1"},
			&twiml.VoiceGather{
				Input:               "speech",
				Action:              s.Action,
				Method:              "POST",
				SpeechTimeout:       "auto",
				Language:            s.Language,
				ActionOnEmptyResult: "true",
			},
		)
	}

	return twiml.Voice(verbs)
}
