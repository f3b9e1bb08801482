package agentlink

// MessagesFromSlice builds a turn stream from a slice.
func MessagesFromSlice(turns []UserTurn) TurnStream {
	return func(yield func(UserTurn) bool) {
		for _, turn := range turns {
			if !yield(turn) {
				return
			}
		}
	}
}

// MessagesFromChannel builds a turn stream that drains a channel. The
// stream ends when the channel closes.
func MessagesFromChannel(ch <-chan UserTurn) TurnStream {
	return func(yield func(UserTurn) bool) {
		for turn := range ch {
			if !yield(turn) {
				return
			}
		}
	}
}

// SingleMessage builds a turn stream with one prompt.
func SingleMessage(prompt string) TurnStream {
	return MessagesFromSlice([]UserTurn{NewUserTurn(prompt)})
}
