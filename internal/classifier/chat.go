package classifier

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"unicode/utf8"
)

// ChatTurn sigue el formato de historial que espera /chat_with_emotion.
type ChatTurn struct {
	Role  string     `json:"role"`
	Parts []ChatPart `json:"parts"`
}

type ChatPart struct {
	Text string `json:"text"`
}

type ChatRequest struct {
	Message string     `json:"message"`
	Emotion string     `json:"emotion,omitempty"`
	History []ChatTurn `json:"history,omitempty"`
}

type ChatReply struct {
	Text            string
	DetectedEmotion string
}

type chatResponse struct {
	BotResponse     string `json:"bot_response"`
	DetectedEmotion string `json:"detected_emotion"`
	Error           string `json:"error,omitempty"`
}

// Chat maneja POST /chat_with_emotion. Acepta respuesta JSON completa, SSE o texto
// en chunks; cada fragmento se entrega en orden a onDelta.
func (c *Client) Chat(ctx context.Context, in ChatRequest, onDelta func(string)) (ChatReply, error) {
	if strings.TrimSpace(in.Message) == "" {
		return ChatReply{}, fmt.Errorf("%w: empty message", ErrService)
	}
	if onDelta == nil {
		onDelta = func(string) {}
	}

	bodyBytes, err := json.Marshal(in)
	if err != nil {
		return ChatReply{}, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat_with_emotion", bytes.NewReader(bodyBytes))
	if err != nil {
		return ChatReply{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream, text/plain")

	resp, err := c.client.Do(req)
	if err != nil {
		return ChatReply{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return ChatReply{}, c.statusError("/chat_with_emotion", resp.StatusCode, respBody)
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	reply := ChatReply{DetectedEmotion: strings.TrimSpace(resp.Header.Get("X-Detected-Emotion"))}

	switch mediaType {
	case "application/json":
		var cr chatResponse
		if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
			return ChatReply{}, fmt.Errorf("%w: decode chat response: %v", ErrService, err)
		}
		if cr.Error != "" {
			return ChatReply{}, fmt.Errorf("%w: %s", ErrService, cr.Error)
		}
		if cr.BotResponse == "" {
			return ChatReply{}, fmt.Errorf("%w: empty chat response", ErrService)
		}
		onDelta(cr.BotResponse)
		reply.Text = cr.BotResponse
		if cr.DetectedEmotion != "" {
			reply.DetectedEmotion = cr.DetectedEmotion
		}
	case "text/event-stream":
		text, err := readEventStream(resp.Body, onDelta)
		if err != nil {
			return ChatReply{}, fmt.Errorf("%w: read stream: %v", ErrTransport, err)
		}
		reply.Text = text
	default:
		text, err := readChunks(resp.Body, onDelta)
		if err != nil {
			return ChatReply{}, fmt.Errorf("%w: read stream: %v", ErrTransport, err)
		}
		reply.Text = text
	}

	if strings.TrimSpace(reply.Text) == "" {
		return ChatReply{}, fmt.Errorf("%w: empty chat response", ErrService)
	}
	if reply.DetectedEmotion == "" {
		reply.DetectedEmotion = "neutral"
	}
	return reply, nil
}

// readEventStream arma cada evento SSE uniendo sus lineas "data:" con "\n" y lo
// entrega al llegar la linea en blanco que lo cierra. Un evento con un solo
// "data:" vacio es un salto de linea. Termina en [DONE] o EOF.
func readEventStream(r io.Reader, onDelta func(string)) (string, error) {
	var (
		sb      strings.Builder
		lines   []string
		hasData bool
	)
	dispatch := func() bool {
		if !hasData {
			return true
		}
		data := strings.Join(lines, "\n")
		lines, hasData = lines[:0], false
		if data == "[DONE]" {
			return false
		}
		if data == "" {
			data = "\n"
		}
		sb.WriteString(data)
		onDelta(data)
		return true
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if line == "" {
			if !dispatch() {
				return sb.String(), nil
			}
			continue
		}
		if line == "data" {
			lines, hasData = append(lines, ""), true
			continue
		}
		if !strings.HasPrefix(line, "data:") {
			// comentarios y campos event/id/retry
			continue
		}
		data := strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " ")
		lines, hasData = append(lines, data), true
	}
	if err := scanner.Err(); err != nil {
		return sb.String(), err
	}
	dispatch()
	return sb.String(), nil
}

// readChunks entrega el body a medida que llega sin cortar runas UTF-8.
func readChunks(r io.Reader, onDelta func(string)) (string, error) {
	var (
		sb    strings.Builder
		carry []byte
	)
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := append(carry, buf[:n]...)
			cut := validPrefix(chunk)
			if cut > 0 {
				sb.Write(chunk[:cut])
				onDelta(string(chunk[:cut]))
			}
			carry = append([]byte(nil), chunk[cut:]...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return sb.String(), err
		}
	}
	if len(carry) > 0 {
		sb.Write(carry)
		onDelta(string(carry))
	}
	return sb.String(), nil
}

// validPrefix devuelve el largo del prefijo que no termina en una runa incompleta.
func validPrefix(b []byte) int {
	end := len(b)
	for i := 0; i < utf8.UTFMax && end-i > 0; i++ {
		start := end - i - 1
		if utf8.RuneStart(b[start]) {
			if utf8.FullRune(b[start:end]) {
				return end
			}
			return start
		}
	}
	return end
}
