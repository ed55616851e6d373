package envelope

// Decode runs the full codec pipeline a decision-loop cycle needs: parse the
// raw LLM text, normalize it, validate it, and auto-repair on failure. It
// always returns a usable envelope — on total parse failure it returns a
// synthesized error envelope instead of a nil pointer.
func Decode(text string) *Envelope {
	env, err := Parse(text)
	if err != nil {
		return CreateErrorEnvelope(err.Error(), "json_parse_error")
	}

	env = Normalize(env)

	if ok, _ := Validate(env); !ok {
		env = AutoRepair(env)
	}

	return env
}
