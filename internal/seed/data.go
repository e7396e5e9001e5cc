package seed

import "github.com/hitoshi/fonomed/internal/model"

type demoAccount struct {
	email     string
	name      string
	role      model.Role
	patient   *model.Patient
	therapist *model.Therapist
}

var demoAccounts = []demoAccount{
	{
		email: "admin@fonomed.com",
		name:  "Admin FonoMed",
		role:  model.RoleAdmin,
	},
	{
		email: "therapist@fonomed.com",
		name:  "Dr. Maria Silva",
		role:  model.RoleTherapist,
		therapist: &model.Therapist{
			FullName:    "Dra. Maria Silva",
			CRFaNumber:  "12345-SP",
			Specialties: []string{"Linguagem Infantil", "Disfagia", "Voz Profissional"},
			Bio:         "Fonoaudióloga com 10 anos de experiência em atendimento infantil e reabilitação vocal.",
		},
	},
	{
		email: "patient@fonomed.com",
		name:  "João Santos",
		role:  model.RolePatient,
		patient: &model.Patient{
			FullName:     "João Santos",
			BirthDate:    "2015-05-15",
			CPF:          "123.456.789-00",
			Phone:        "(11) 98765-4321",
			Address:      "Rua das Flores, 123 - São Paulo",
			Diagnosis:    "Atraso de fala, dificuldade com fonema /R/",
			Observations: "Criança colaborativa, mãe presente nas sessões.",
		},
	},
}

func minutes(n int) *int { return &n }

var demoExercises = []model.Exercise{
	{
		Title:           "Exercício do Som /R/",
		Description:     "Pratique a pronúncia correta do som /R/ em diferentes posições",
		Category:        "fonema",
		DifficultyLevel: "médio",
		MediaURLs:       []string{"https://images.unsplash.com/photo-1617994452722-4145e196248b"},
		Instructions:    "1. Posicione a língua no céu da boca\n2. Vibre a ponta da língua\n3. Repita: rato, carro, porta, ferro\n4. Pratique 10 repetições de cada palavra",
		EstimatedTime:   minutes(15),
		Frequency:       "3x por semana",
	},
	{
		Title:           "Exercício do Som /S/",
		Description:     "Melhore a articulação do som /S/ sibilante",
		Category:        "fonema",
		DifficultyLevel: "fácil",
		Instructions:    "1. Coloque a língua atrás dos dentes superiores\n2. Deixe o ar passar pelos lados\n3. Repita: sapo, casa, osso, passo\n4. Pratique em frente ao espelho",
		EstimatedTime:   minutes(10),
		Frequency:       "diário",
	},
	{
		Title:           "Respiração Diafragmática",
		Description:     "Fortalecimento da respiração para melhor controle vocal",
		Category:        "respiração",
		DifficultyLevel: "fácil",
		Instructions:    "1. Deite-se confortavelmente\n2. Coloque uma mão no peito e outra na barriga\n3. Inspire pelo nariz enchendo a barriga\n4. Expire lentamente pela boca\n5. Repita 10 vezes",
		EstimatedTime:   minutes(10),
		Frequency:       "2x por dia",
	},
	{
		Title:           "Exercícios de Ritmo",
		Description:     "Melhore o ritmo e a fluência da fala",
		Category:        "ritmo",
		DifficultyLevel: "médio",
		Instructions:    "1. Bata palmas seguindo um padrão rítmico\n2. Fale palavras sincronizadas com as palmas\n3. Aumente gradualmente a velocidade\n4. Pratique frases completas com ritmo",
		EstimatedTime:   minutes(20),
		Frequency:       "3x por semana",
	},
	{
		Title:           "Alongamento da Língua",
		Description:     "Fortalecimento e mobilidade da musculatura da língua",
		Category:        "motricidade",
		DifficultyLevel: "fácil",
		Instructions:    "1. Estique a língua para fora o máximo possível\n2. Toque o nariz com a ponta da língua\n3. Toque o queixo\n4. Mova a língua de um lado para outro\n5. Repita cada movimento 10 vezes",
		EstimatedTime:   minutes(8),
		Frequency:       "diário",
	},
	{
		Title:           "Vocalização de Vogais",
		Description:     "Exercício para clareza e projeção vocal",
		Category:        "voz",
		DifficultyLevel: "fácil",
		Instructions:    "1. Em pé, com postura ereta\n2. Inspire profundamente\n3. Vocalize cada vogal sustentando por 5 segundos: A-E-I-O-U\n4. Varie a intensidade e o tom\n5. Repita 3 séries",
		EstimatedTime:   minutes(12),
		Frequency:       "diário",
	},
}
