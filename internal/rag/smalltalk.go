package rag

import "strings"

const (
	maxSmallTalkRunes = 30
	maxSmallTalkTail  = 3
)

// courtesyWords may follow a phrase without turning small talk into a question.
var courtesyWords = map[string]bool{
	"bạn": true, "nhé": true, "nha": true, "nhiều": true, "lắm": true, "ạ": true,
	"rất": true, "mình": true, "em": true, "anh": true, "chị": true, "thầy": true, "cô": true,
	"you": true, "there": true, "very": true, "much": true, "so": true, "a": true, "lot": true,
	"again": true, "all": true, "everyone": true,
}

type smallTalkReply struct {
	phrases []string
	reply   string
}

var smallTalk = []smallTalkReply{
	{
		phrases: []string{"xin chào", "chào bạn", "chào", "hello", "hi", "hey"},
		reply:   "Xin chào! Tôi có thể giúp bạn tìm hiểu nội dung tài liệu. Hãy đặt câu hỏi về tài liệu bạn đã tải lên.",
	},
	{
		phrases: []string{"cảm ơn", "cám ơn", "thanks", "thank you", "thank"},
		reply:   "Rất vui được giúp bạn! Nếu còn câu hỏi nào về tài liệu, cứ hỏi nhé.",
	},
	{
		phrases: []string{"tạm biệt", "bye", "goodbye"},
		reply:   "Tạm biệt! Chúc bạn học tốt.",
	},
	{
		phrases: []string{"ok", "okay", "oke"},
		reply:   "Bạn cần tôi giúp gì thêm về tài liệu không?",
	},
}

// smallTalkResponse returns a canned reply for greetings and thanks.
// Only short inputs that equal or start with a known phrase qualify.
func smallTalkResponse(question string) (string, bool) {
	q := strings.ToLower(strings.TrimSpace(question))
	q = strings.TrimRight(q, "!.~ ")
	if q == "" || strings.Contains(q, "?") || len([]rune(q)) > maxSmallTalkRunes {
		return "", false
	}
	for _, st := range smallTalk {
		for _, p := range st.phrases {
			if q == p {
				return st.reply, true
			}
			// "chào bạn nhé", "cảm ơn nhiều" but not "hi phần 4"
			rest, ok := strings.CutPrefix(q, p)
			if ok && (strings.HasPrefix(rest, " ") || strings.HasPrefix(rest, ",")) && courteousTail(rest) {
				return st.reply, true
			}
		}
	}
	return "", false
}

func courteousTail(rest string) bool {
	words := strings.Fields(strings.NewReplacer(",", " ", "!", " ", ".", " ").Replace(rest))
	if len(words) > maxSmallTalkTail {
		return false
	}
	for _, w := range words {
		if !courtesyWords[w] {
			return false
		}
	}
	return true
}
