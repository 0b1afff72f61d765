package dto

type ModerateRequest struct {
	Text string `json:"text" validate:"required,max=5000"`
}

type ModerateResponse struct {
	Decision  string  `json:"decision"`
	Reason    string  `json:"reason"`
	Message   string  `json:"message,omitempty"`
	Score     float64 `json:"score"`
	Signature string  `json:"signature,omitempty"`
	OracleID  string  `json:"oracle_id,omitempty"`
}
