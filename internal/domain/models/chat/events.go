package chat

// EventKind discriminates the concrete event types streamed during a turn.
type EventKind string

const (
	KindMessageStart     EventKind = "message_start"
	KindMessageDelta     EventKind = "message_delta"
	KindMessageDone      EventKind = "message_done"
	KindReasoningStart   EventKind = "reasoning_start"
	KindReasoningDelta   EventKind = "reasoning_delta"
	KindReasoningDone    EventKind = "reasoning_done"
	KindToolCallStart    EventKind = "tool_call_start"
	KindToolCallArgs     EventKind = "tool_call_args_delta"
	KindToolCallOutput   EventKind = "tool_call_output"
	KindCitationStart    EventKind = "citation_start"
	KindCitationDelta    EventKind = "citation_delta"
	KindStop             EventKind = "stop"
	KindException        EventKind = "exception"
)

// Event is the closed union of events produced while a turn is running.
// TurnIndex() reports which LLM round within the turn produced the event
// (0-based; a turn with tool calls runs multiple rounds).
type Event interface {
	Kind() EventKind
	Turn() int
}

type (
	// MessageStart marks the beginning of the visible answer stream.
	MessageStart struct {
		TurnIndex int
	}

	// MessageDelta carries a fragment of visible answer text.
	MessageDelta struct {
		TurnIndex int
		Text      string
	}

	// MessageDone closes the visible answer stream for this round.
	MessageDone struct {
		TurnIndex int
	}

	// ReasoningStart marks the beginning of the model's reasoning stream.
	ReasoningStart struct {
		TurnIndex int
	}

	// ReasoningDelta carries a fragment of reasoning text.
	ReasoningDelta struct {
		TurnIndex int
		Text      string
	}

	// ReasoningDone closes the reasoning stream for this round.
	ReasoningDone struct {
		TurnIndex int
	}

	// ToolCallStart announces that a tool invocation is about to run.
	ToolCallStart struct {
		TurnIndex int
		CallID    string
		Name      string
	}

	// ToolCallArgsDelta carries a raw fragment of tool-call argument JSON
	// for the accumulator at the given slot.
	ToolCallArgsDelta struct {
		TurnIndex int
		Slot      int
		Fragment  string
	}

	// ToolCallOutput carries the full payload a tool returned.
	ToolCallOutput struct {
		TurnIndex int
		CallID    string
		Name      string
		Output    string
	}

	// CitationStart marks the first citation assignment of the turn.
	CitationStart struct {
		TurnIndex int
	}

	// CitationDelta announces one newly numbered document.
	CitationDelta struct {
		TurnIndex int
		Number    int
		Document  DocumentRef
	}

	// Stop marks normal completion of the turn. Emitted exactly once.
	Stop struct {
		TurnIndex int
	}

	// Exception marks abnormal termination of the turn. Terminal.
	Exception struct {
		TurnIndex int
		Err       error
	}
)

func (e MessageStart) Kind() EventKind      { return KindMessageStart }
func (e MessageDelta) Kind() EventKind      { return KindMessageDelta }
func (e MessageDone) Kind() EventKind       { return KindMessageDone }
func (e ReasoningStart) Kind() EventKind    { return KindReasoningStart }
func (e ReasoningDelta) Kind() EventKind    { return KindReasoningDelta }
func (e ReasoningDone) Kind() EventKind     { return KindReasoningDone }
func (e ToolCallStart) Kind() EventKind     { return KindToolCallStart }
func (e ToolCallArgsDelta) Kind() EventKind { return KindToolCallArgs }
func (e ToolCallOutput) Kind() EventKind    { return KindToolCallOutput }
func (e CitationStart) Kind() EventKind     { return KindCitationStart }
func (e CitationDelta) Kind() EventKind     { return KindCitationDelta }
func (e Stop) Kind() EventKind              { return KindStop }
func (e Exception) Kind() EventKind         { return KindException }

func (e MessageStart) Turn() int      { return e.TurnIndex }
func (e MessageDelta) Turn() int      { return e.TurnIndex }
func (e MessageDone) Turn() int       { return e.TurnIndex }
func (e ReasoningStart) Turn() int    { return e.TurnIndex }
func (e ReasoningDelta) Turn() int    { return e.TurnIndex }
func (e ReasoningDone) Turn() int     { return e.TurnIndex }
func (e ToolCallStart) Turn() int     { return e.TurnIndex }
func (e ToolCallArgsDelta) Turn() int { return e.TurnIndex }
func (e ToolCallOutput) Turn() int    { return e.TurnIndex }
func (e CitationStart) Turn() int     { return e.TurnIndex }
func (e CitationDelta) Turn() int     { return e.TurnIndex }
func (e Stop) Turn() int              { return e.TurnIndex }
func (e Exception) Turn() int         { return e.TurnIndex }
