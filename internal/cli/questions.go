package cli

import "quiz-battle-service/internal/domain"

// sampleQuestions seeds the in-memory loader when no Postgres question bank is configured.
func sampleQuestions() []domain.Question {
	q := func(id, category string, difficulty int, text, correct string, alternatives ...string) domain.Question {
		return domain.Question{
			ID:            id,
			Text:          text,
			Alternatives:  alternatives,
			CorrectAnswer: correct,
			Category:      category,
			Difficulty:    difficulty,
		}
	}
	return []domain.Question{
		q("sci-1", "science", 1, "What is the chemical symbol for water?", "H2O", "H2O", "CO2", "O2", "NaCl"),
		q("sci-2", "science", 1, "Which planet is known as the Red Planet?", "Mars", "Venus", "Mars", "Jupiter", "Mercury"),
		q("sci-3", "science", 2, "What gas do plants absorb from the air?", "Carbon dioxide", "Oxygen", "Nitrogen", "Carbon dioxide", "Helium"),
		q("sci-4", "science", 3, "What is the speed of light in vacuum, roughly?", "300,000 km/s", "30,000 km/s", "300,000 km/s", "3,000 km/s", "3,000,000 km/s"),
		q("sci-5", "science", 2, "How many bones are in the adult human body?", "206", "186", "206", "226", "246"),
		q("geo-1", "geography", 1, "What is the capital of France?", "Paris", "Paris", "Rome", "Madrid", "Berlin"),
		q("geo-2", "geography", 1, "Which ocean is the largest?", "Pacific", "Atlantic", "Indian", "Arctic", "Pacific"),
		q("geo-3", "geography", 2, "Which river flows through Cairo?", "Nile", "Amazon", "Nile", "Danube", "Tigris"),
		q("geo-4", "geography", 3, "What is the capital of Australia?", "Canberra", "Sydney", "Melbourne", "Canberra", "Perth"),
		q("geo-5", "geography", 2, "Mount Kilimanjaro is in which country?", "Tanzania", "Kenya", "Tanzania", "Uganda", "Ethiopia"),
		q("math-1", "math", 1, "What is 7 x 8?", "56", "54", "56", "64", "48"),
		q("math-2", "math", 2, "What is the square root of 144?", "12", "11", "12", "13", "14"),
		q("math-3", "math", 3, "What is 2 to the power of 10?", "1024", "512", "1000", "1024", "2048"),
	}
}
