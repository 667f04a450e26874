package gemini

import (
	"fmt"

	"quizcraft-service/internal/domain"
)

func quizPrompt(req domain.GenerationRequest) string {
	n := req.NumQuestions

	imageSection := ""
	imageField := `""`
	if req.ImageURL != "" && n > 0 {
		imageField = fmt.Sprintf("%q", req.ImageURL)
		imageSection = fmt.Sprintf(`
One of these %d questions MUST be about the image provided.
The image-based question should involve identifying elements, context, or activities within the image.
This image-based question should also follow all other MCQ formatting requirements.
The "imageUrl" field for this question in the JSON response MUST be exactly: %q.
For all other questions, the "imageUrl" field must be an empty string or omitted.
`, n, req.ImageURL)
	}

	bloomSection := ""
	if req.BloomLevel != "" {
		bloomSection = fmt.Sprintf(`
Focus on generating questions that align with the '%s' level of Bloom's Taxonomy.
For example, if 'Application' is chosen, questions should require applying knowledge to new situations.
If 'Analysis' is chosen, questions should involve breaking down information.
`, req.BloomLevel)
	}

	return fmt.Sprintf(`
You are a smart and friendly quiz generator AI.
Given the following input, generate an interactive quiz.

Input Topic/Text:
---
%s
---

%s

Quiz Requirements:
1. Generate exactly %d multiple-choice questions (MCQs).
2. Each question must have 4 options (A, B, C, D) with only one correct answer.
3. Clearly indicate the correct answer (using "A", "B", "C", or "D") and provide a short explanation for each question.
4. Mix difficulty levels (Easy, Medium, Hard) and label them for each question.
5. Avoid repeating questions or answers.
6. Use clear, beginner-friendly language.
%s
7. Format the output as a single structured JSON object matching this structure:
{
  "topic": "User Provided Topic or A summary of the custom text if it was long",
  "questions": [
    {
      "question": "Sample question text?",
      "options": { "A": "Option A", "B": "Option B", "C": "Option C", "D": "Option D" },
      "correctAnswer": "C",
      "explanation": "Explanation for why C is correct.",
      "difficulty": "Easy",
      "imageUrl": %s
    }
  ]
}

Be concise and accurate. If the input was a large text or document, ensure questions are based on its key points.
Ensure the "topic" field in the JSON response accurately reflects the subject matter of the quiz generated.
If an image URL was provided for an image-based question, ensure that question's JSON object includes the "imageUrl" field with the provided URL. For other questions, this field should be omitted or be an empty string. Make sure only ONE question has the imageUrl if provided.
All %d questions should be unique.
`, req.TopicOrText, imageSection, n, bloomSection, imageField, n)
}

func simplifyPrompt(text string) string {
	return "Please simplify the following text. Explain it in a very simple way, as if you were talking to a 5-year-old child. " +
		"Be clear, concise, and use easy-to-understand words.\n\nOriginal Text:\n---\n" + text +
		"\n---\n\nSimplified Explanation (for a 5-year-old):"
}

func tutorInstruction(topic string, mode domain.TutorMode) string {
	if mode == domain.TutorSocratic {
		return fmt.Sprintf("You are an AI Tutor using the Socratic method, specializing in %q. "+
			"Your primary goal is to guide the user to discover answers and understanding themselves. "+
			"Respond to user queries mostly by asking insightful, probing questions. "+
			"Avoid giving direct answers or lengthy explanations unless specifically asked to clarify a point after Socratic exploration. "+
			"Encourage critical thinking. If the user seems stuck, you can provide small hints or slightly more direct guidance, "+
			"but always try to return to questioning. Stay focused on %q.", topic, topic)
	}
	return fmt.Sprintf("You are an expert AI Tutor specializing in %q. Your goal is to help the user understand this topic better. "+
		"Be patient, encouraging, and explain concepts clearly and concisely. "+
		"Ask follow-up questions to stimulate critical thinking if appropriate. "+
		"Keep your responses focused on the topic. Do not go off-topic. "+
		"If the user asks something completely unrelated to %q, politely steer them back or state that you can only discuss %q.",
		topic, topic, topic)
}
