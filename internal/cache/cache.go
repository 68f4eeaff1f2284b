// Package cache 把反编译结果按方法指纹持久化到 pebble
package cache

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/cockroachdb/pebble"
	"github.com/segmentio/encoding/json"
	"go.uber.org/atomic"
	"golang.org/x/crypto/blake2b"

	"github.com/tangzhangming/dexdec/internal/bytecode"
)

// 键前缀
var (
	prefixSource = []byte("src:")
)

// SchemaVersion 条目格式版本，变化后旧条目自动失效
const SchemaVersion = 1

// Entry 一个方法的缓存结果
type Entry struct {
	Source string `json:"source"`
	Gotos  int    `json:"gotos"`
	Loops  int    `json:"loops"`
}

// Cache 反编译结果缓存
type Cache struct {
	db     *pebble.DB
	hits   atomic.Int64
	misses atomic.Int64
}

// Open 打开或创建缓存目录
func Open(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}
	db, err := pebble.Open(dir, &pebble.Options{
		Cache: pebble.NewCache(8 << 20),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache %q: %w", dir, err)
	}
	return &Cache{db: db}, nil
}

// Close 关闭缓存
func (c *Cache) Close() error {
	return c.db.Close()
}

// Get 查找条目，不存在时 ok 为 false
func (c *Cache) Get(key []byte) (entry *Entry, ok bool, err error) {
	data, closer, err := c.db.Get(append(prefixSource[:len(prefixSource):len(prefixSource)], key...))
	if err == pebble.ErrNotFound {
		c.misses.Inc()
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get: %w", err)
	}
	defer closer.Close()

	entry = new(Entry)
	if err := json.Unmarshal(data, entry); err != nil {
		// 损坏的条目按未命中处理
		c.misses.Inc()
		return nil, false, nil
	}
	c.hits.Inc()
	return entry, true, nil
}

// Put 写入条目
func (c *Cache) Put(key []byte, entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	k := append(prefixSource[:len(prefixSource):len(prefixSource)], key...)
	if err := c.db.Set(k, data, pebble.NoSync); err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// Flush 把内存表刷到磁盘
func (c *Cache) Flush() error {
	return c.db.Flush()
}

// Hits 命中次数
func (c *Cache) Hits() int64 { return c.hits.Load() }

// Misses 未命中次数
func (c *Cache) Misses() int64 { return c.misses.Load() }

// ============================================================================
// 缓存键
// ============================================================================

// Key 由方法指纹和配置指纹组成的缓存键
func Key(m *bytecode.Method, configFingerprint string) []byte {
	h, _ := blake2b.New256(nil)
	writeField(h, fmt.Sprintf("v%d", SchemaVersion))
	writeField(h, configFingerprint)
	fp := Fingerprint(m)
	h.Write(fp[:])
	return h.Sum(nil)
}

// Fingerprint 方法内容的指纹，与配置无关
func Fingerprint(m *bytecode.Method) [blake2b.Size256]byte {
	h, _ := blake2b.New256(nil)
	writeMethod(h, m)
	var out [blake2b.Size256]byte
	copy(out[:], h.Sum(nil))
	return out
}

func writeMethod(w io.Writer, m *bytecode.Method) {
	writeField(w, m.FullName())
	writeField(w, fmt.Sprintf("%d/%d", m.Access, m.Registers))
	for _, inst := range m.Code {
		writeField(w, fmt.Sprintf("%04x %s", inst.Offset, inst))
	}
	for _, t := range m.Tries {
		writeField(w, fmt.Sprintf("try %04x-%04x", t.Start, t.End))
		for _, h := range t.Handlers {
			writeField(w, fmt.Sprintf("catch %s %04x", h.Type, h.Target))
		}
	}
}

// writeField 带长度前缀写入，避免字段拼接产生歧义
func writeField(w io.Writer, s string) {
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(s)))
	w.Write(n[:])
	io.WriteString(w, s)
}
