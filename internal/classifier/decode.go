package classifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"sentio/internal/domain"
)

func decodeVoiceScores(body []byte) ([]domain.EmotionScore, error) {
	var scores []domain.EmotionScore
	if err := json.Unmarshal(body, &scores); err != nil {
		return nil, err
	}
	return dedupeLabels(scores), nil
}

type faceResponse struct {
	DominantEmotion string        `json:"dominant_emotion"`
	EmotionScores   orderedScores `json:"emotion_scores"`
}

func decodeFaceResult(body []byte) (FaceResult, error) {
	var raw faceResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return FaceResult{}, err
	}

	scores := normalizePercentages(dedupeLabels(raw.EmotionScores))
	if len(scores) == 0 && raw.DominantEmotion != "" {
		scores = []domain.EmotionScore{{Label: raw.DominantEmotion, Score: 1}}
	}
	return FaceResult{
		DominantEmotion: raw.DominantEmotion,
		Scores:          scores,
	}, nil
}

// orderedScores decodifica un objeto {label: score} preservando el orden de las claves,
// que define el desempate del reducer.
type orderedScores []domain.EmotionScore

func (o *orderedScores) UnmarshalJSON(b []byte) error {
	if string(bytes.TrimSpace(b)) == "null" {
		*o = nil
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("emotion_scores: expected object")
	}

	var out []domain.EmotionScore
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		label, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("emotion_scores: expected string key")
		}
		var score float64
		if err := dec.Decode(&score); err != nil {
			return fmt.Errorf("emotion_scores[%s]: %w", label, err)
		}
		out = append(out, domain.EmotionScore{Label: label, Score: score})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*o = out
	return nil
}

// normalizePercentages lleva puntajes en escala 0-100 (DeepFace) a [0,1].
func normalizePercentages(scores []domain.EmotionScore) []domain.EmotionScore {
	percent := false
	for _, s := range scores {
		if s.Score > 1 {
			percent = true
			break
		}
	}
	if !percent {
		return scores
	}
	out := make([]domain.EmotionScore, len(scores))
	for i, s := range scores {
		out[i] = domain.EmotionScore{Label: s.Label, Score: s.Score / 100}
	}
	return out
}

// dedupeLabels conserva la primera aparicion de cada etiqueta.
func dedupeLabels(scores []domain.EmotionScore) []domain.EmotionScore {
	seen := make(map[string]struct{}, len(scores))
	out := scores[:0:0]
	for _, s := range scores {
		label := strings.TrimSpace(s.Label)
		if label == "" {
			continue
		}
		if _, dup := seen[label]; dup {
			continue
		}
		seen[label] = struct{}{}
		out = append(out, domain.EmotionScore{Label: label, Score: s.Score})
	}
	return out
}

func errorMessage(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
