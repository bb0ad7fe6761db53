package anthropic

// BuildCachedSystemBlocks splits a system prompt into a plain instruction
// block and a cached context block. The member context is identical for
// every question against one snapshot, so repeated questions read it from
// the prompt cache. An empty context yields only the instruction block.
func BuildCachedSystemBlocks(instructions, memberContext, ttl string) []SystemBlock {
	blocks := []SystemBlock{{Text: instructions}}
	if memberContext == "" {
		return blocks
	}
	return append(blocks, SystemBlock{
		Text:         memberContext,
		CacheControl: &CacheControl{TTL: ttl},
	})
}
