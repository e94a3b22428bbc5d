package models

type ChatQuery struct {
	Question string `json:"question"`
}

type ChatReply struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}
