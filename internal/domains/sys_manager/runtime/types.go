package runtime

type RuntimePhase string

const (
	IDLE        RuntimePhase = "idle"
	LISTENING   RuntimePhase = "listening"   // collecting an utterance
	PROCESSING  RuntimePhase = "processing"  // transcribing + generating
	SPEAKING    RuntimePhase = "speaking"    // audio going out
	INTERRUPTED RuntimePhase = "interrupted" // waiting for the cancelled turn to settle
)

type RuntimeEvents string

const (
	HEAR      RuntimeEvents = "hear"
	END       RuntimeEvents = "end"
	SPEAK     RuntimeEvents = "speak"
	FINISH    RuntimeEvents = "finish"
	FAIL      RuntimeEvents = "fail"
	INTERRUPT RuntimeEvents = "interrupt"
	SETTLE    RuntimeEvents = "settle"
)
