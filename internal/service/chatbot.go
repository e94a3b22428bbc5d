package service

import (
	"fmt"

	"github.com/kjstillabower/smartstore-copilot/internal/models"
)

// ChatbotService answers store questions. The answer is a canned demo reply.
type ChatbotService struct{}

func NewChatbotService() *ChatbotService {
	return &ChatbotService{}
}

// Answer echoes question inside the demo reply template.
func (s *ChatbotService) Answer(question string) models.ChatReply {
	return models.ChatReply{
		Question: question,
		Answer:   fmt.Sprintf("'%s' ka jawab AI se aa raha hai (demo response).", question),
	}
}
