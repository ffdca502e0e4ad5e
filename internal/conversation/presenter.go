package conversation

import (
	"github.com/hubenschmidt/xinqing-companion/internal/crisis"
	"github.com/hubenschmidt/xinqing-companion/internal/emotion"
)

// BubbleKind tags what produced a chat bubble.
type BubbleKind string

const (
	BubbleUser             BubbleKind = "user"
	BubbleGreeting         BubbleKind = "greeting"
	BubbleThinking         BubbleKind = "thinking"
	BubbleNothingSaid      BubbleKind = "nothing_said"
	BubbleUnsupported      BubbleKind = "unsupported"
	BubbleReply            BubbleKind = "reply"
	BubbleBackendError     BubbleKind = "backend_error"
	BubbleTransportFailure BubbleKind = "transport_failure"
)

// Bubble is one chat line.
type Bubble struct {
	Text     string
	FromUser bool
	Kind     BubbleKind
}

// Presenter renders conversation output. Calls come from the controller
// loop only, one at a time.
type Presenter interface {
	AppendBubble(b Bubble)
	UpdateUserBubble(text string)
	FinalizeUserBubble(label emotion.Label)
	ShowCrisisAlert(sig crisis.Signal)
}

// Messages are the companion's canned lines.
type Messages struct {
	Greeting           string
	Thinking           string
	NothingSaid        string
	SpeechUnsupported  string
	BackendErrorPrefix string
	TransportFailure   string
}

// DefaultMessages returns the Cantonese defaults.
func DefaultMessages() Messages {
	return Messages{
		Greeting:           "哈囉！今日心情點呀？有咩想同我傾？",
		Thinking:           "傾偈完畢，正在思考回應...",
		NothingSaid:        "你冇講嘢呀，再試一次好唔好？",
		SpeechUnsupported:  "抱歉，呢個瀏覽器唔支援語音輸入。可以用文字傾偈啦。",
		BackendErrorPrefix: "抱歉，後端出錯：",
		TransportFailure:   "無法連到後端，請檢查伺服器是否運行。",
	}
}
