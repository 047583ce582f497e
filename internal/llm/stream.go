package llm

import "context"

// StreamFromGenerate adapts a one-shot call into the streaming contract: the
// whole content is delivered as a single chunk.
func StreamFromGenerate(ctx context.Context, p Provider, msgs []Message, opts ...CallOption) (<-chan Chunk, error) {
	res, err := p.Generate(ctx, msgs, opts...)
	if err != nil {
		return nil, err
	}
	ch := make(chan Chunk, 1)
	if res.Content != "" {
		ch <- Chunk{Text: res.Content}
	}
	close(ch)
	return ch, nil
}

// Collect drains a stream into one string, stopping at the first error chunk.
func Collect(ch <-chan Chunk) (string, error) {
	var out []byte
	for c := range ch {
		if c.Err != nil {
			return string(out), c.Err
		}
		out = append(out, c.Text...)
	}
	return string(out), nil
}
