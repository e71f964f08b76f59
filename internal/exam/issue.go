package exam

// IssueType tags a consistency-validator finding
type IssueType string

const (
	IssueImageMissing        IssueType = "image-missing"
	IssueAnswerMissing       IssueType = "answer-missing"
	IssueAnswerNone          IssueType = "answer-none"
	IssueAnswerMismatch      IssueType = "answer-mismatch"
	IssueChoicesMissing      IssueType = "choices-missing"
	IssueExplanationTooShort IssueType = "explanation-too-short"
	IssueQuestionTooShort    IssueType = "question-too-short"
)

// Issue is one validator finding for a record. Priority 1 is the most actionable.
type Issue struct {
	DocID    string    `json:"doc_id"`
	QNo      string    `json:"q_no"`
	Type     IssueType `json:"type"`
	Priority int       `json:"priority"`
	Message  string    `json:"message"`
	Evidence string    `json:"evidence,omitempty"`
}
