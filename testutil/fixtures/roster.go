// =============================================================================
// 📦 测试数据工厂 - 伙伴名册
// =============================================================================
// 提供预定义的名册 YAML 与长文档，用于引擎与命令行测试
// =============================================================================
package fixtures

import "strings"

// RosterYAML 是一个包含两个 NPC、一个摘要副手与一个指令副手的名册
const RosterYAML = `
default_situation: fireplace
companions:
  - name: Anne
    description: A kind librarian.
    base_prompt: You are Anne.
    kind: npc
    situations:
      - id: fireplace
        prompt: You sit by the fireplace.
    moods:
      - probability: 1
        label: happy
        prompt: You are happy.
    knowledge:
      - lines: [Anne likes tea.]
    mottos:
      - category: greeting
        lines: ["Hello {{USERNAME}}!"]
    actions:
      - id: SUMMARY
        label: Summarise
        deputy: reader
      - id: LAST_WORDS
        deputy: reader
        scope: last_sentence
  - name: Bob
    description: A grumpy sailor.
    base_prompt: You are Bob.
    kind: npc
  - name: Reader
    class: instruction
    description: Summarises documents.
    kind: shell
    scope: document
    job: Comment on the text.
`

// LongDocument 返回至少 n 字节、由完整句子组成的文档
func LongDocument(n int) string {
	const sentence = "The quick brown fox jumps over the lazy dog. "
	var sb strings.Builder
	for sb.Len() < n {
		sb.WriteString(sentence)
	}
	return sb.String()
}
