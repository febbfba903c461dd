// Package twiml builds the small, fixed set of TwiML response verbs
// this bridge needs via string concatenation, the same way the
// teacher's carrier transport does — the verb set is small and static,
// not worth an XML-encoding library for.
package twiml

import (
	"fmt"
	"strings"
)

// Builder accumulates verbs and renders one <Response> document.
type Builder struct {
	verbs []string
}

func New() *Builder {
	return &Builder{}
}

// Say appends <Say voice="..." language="...">text</Say>. voice and
// language are omitted from the tag when empty.
func (b *Builder) Say(text, voice, language string) *Builder {
	var attrs strings.Builder
	if voice != "" {
		attrs.WriteString(fmt.Sprintf(` voice="%s"`, Escape(voice)))
	}
	if language != "" {
		attrs.WriteString(fmt.Sprintf(` language="%s"`, Escape(language)))
	}
	b.verbs = append(b.verbs, fmt.Sprintf(`<Say%s>%s</Say>`, attrs.String(), Escape(text)))
	return b
}

// GatherOptions configures a <Gather> verb.
type GatherOptions struct {
	Input         string
	Timeout       int
	SpeechTimeout string
	Language      string
	Action        string
	PromptText    string
	PromptVoice   string
}

// Gather appends a <Gather> wrapping a nested <Say> prompt.
func (b *Builder) Gather(opts GatherOptions) *Builder {
	input := opts.Input
	if input == "" {
		input = "speech"
	}
	speechTimeout := opts.SpeechTimeout
	if speechTimeout == "" {
		speechTimeout = "auto"
	}
	var attrs strings.Builder
	attrs.WriteString(fmt.Sprintf(` input="%s"`, Escape(input)))
	attrs.WriteString(` method="POST"`)
	if opts.Timeout > 0 {
		attrs.WriteString(fmt.Sprintf(` timeout="%d"`, opts.Timeout))
	}
	attrs.WriteString(fmt.Sprintf(` speechTimeout="%s"`, Escape(speechTimeout)))
	if opts.Language != "" {
		attrs.WriteString(fmt.Sprintf(` language="%s"`, Escape(opts.Language)))
	}
	if opts.Action != "" {
		attrs.WriteString(fmt.Sprintf(` action="%s"`, Escape(opts.Action)))
	}
	inner := ""
	if opts.PromptText != "" {
		var sayAttrs strings.Builder
		if opts.PromptVoice != "" {
			sayAttrs.WriteString(fmt.Sprintf(` voice="%s"`, Escape(opts.PromptVoice)))
		}
		inner = fmt.Sprintf(`<Say%s>%s</Say>`, sayAttrs.String(), Escape(opts.PromptText))
	}
	b.verbs = append(b.verbs, fmt.Sprintf(`<Gather%s>%s</Gather>`, attrs.String(), inner))
	return b
}

// ConnectStream appends <Connect><Stream url="..." track="..."/></Connect>.
func (b *Builder) ConnectStream(wsURL, track string) *Builder {
	var attrs strings.Builder
	attrs.WriteString(fmt.Sprintf(` url="%s"`, Escape(wsURL)))
	if track != "" {
		attrs.WriteString(fmt.Sprintf(` track="%s"`, Escape(track)))
	}
	b.verbs = append(b.verbs, fmt.Sprintf(`<Connect><Stream%s/></Connect>`, attrs.String()))
	return b
}

func (b *Builder) Hangup() *Builder {
	b.verbs = append(b.verbs, `<Hangup/>`)
	return b
}

func (b *Builder) Redirect(url string) *Builder {
	b.verbs = append(b.verbs, fmt.Sprintf(`<Redirect>%s</Redirect>`, Escape(url)))
	return b
}

func (b *Builder) Reject(reason string) *Builder {
	if reason == "" {
		b.verbs = append(b.verbs, `<Reject/>`)
		return b
	}
	b.verbs = append(b.verbs, fmt.Sprintf(`<Reject reason="%s"/>`, Escape(reason)))
	return b
}

func (b *Builder) Record(action string) *Builder {
	if action == "" {
		b.verbs = append(b.verbs, `<Record/>`)
		return b
	}
	b.verbs = append(b.verbs, fmt.Sprintf(`<Record action="%s"/>`, Escape(action)))
	return b
}

func (b *Builder) Dial(number string) *Builder {
	b.verbs = append(b.verbs, fmt.Sprintf(`<Dial>%s</Dial>`, Escape(number)))
	return b
}

// String renders the accumulated verbs as one <Response> document.
func (b *Builder) String() string {
	return `<Response>` + strings.Join(b.verbs, "") + `</Response>`
}

// Escape replaces the five XML special characters, in the fixed order
// the standard requires (ampersand first).
func Escape(in string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		"\"", "&quot;",
		"'", "&apos;",
	)
	return replacer.Replace(in)
}
