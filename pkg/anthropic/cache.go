package anthropic

// BuildCachedSystemBlocks returns a single system block with an ephemeral
// cache breakpoint. Prompts that share the same system text across many
// cells hit the warm cache after the first call.
func BuildCachedSystemBlocks(text string, ttl string) []SystemBlock {
	if text == "" {
		return nil
	}
	return []SystemBlock{{
		Text:         text,
		CacheControl: &CacheControl{TTL: ttl},
	}}
}
