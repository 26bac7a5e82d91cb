package llm

import "unicode/utf8"

// MaxContentChars bounds the user content sent to a backend, in characters.
const MaxContentChars = 12000

// TruncationMarker is appended to user content cut at MaxContentChars.
const TruncationMarker = "\n\n[...текст сокращён: документ превышает допустимый объём...]"

// InstructionPrefix precedes the document text in the user message.
const InstructionPrefix = "Проверь этот документ на соответствие законам РФ:\n\n"

// SystemPrompt is the fixed compliance-audit instruction.
const SystemPrompt = `Ты юрист-аудитор, который проверяет документы интернет-магазинов и сервисов на соответствие законодательству РФ: ГК РФ (публичная оферта), Закону «О защите прав потребителей» (возврат и обмен), 152-ФЗ «О персональных данных» и 38-ФЗ «О рекламе».

Для каждого найденного нарушения укажи:
- фрагмент документа;
- нарушенную норму;
- уровень риска (высокий, средний, низкий);
- рекомендацию по исправлению.

В конце дай общую оценку риска документа. Если текста недостаточно для вывода, прямо скажи об этом. Отвечай на русском языке.`

// Request is a single compliance request as transmitted to a backend.
type Request struct {
	SystemPrompt string
	UserContent  string
}

// NewRequest builds a Request with userContent bounded by Truncate.
func NewRequest(systemPrompt, userContent string) Request {
	return Request{SystemPrompt: systemPrompt, UserContent: Truncate(userContent)}
}

// Truncate cuts s to MaxContentChars characters and appends TruncationMarker.
// Content within the bound is returned unchanged.
func Truncate(s string) string {
	if utf8.RuneCountInString(s) <= MaxContentChars {
		return s
	}
	n := 0
	for i := range s {
		if n == MaxContentChars {
			return s[:i] + TruncationMarker
		}
		n++
	}
	return s
}
