package utilities

import (
	"os"
	"strconv"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/segmentio/ksuid"
)

var (
	nodeOnce sync.Once
	node     *snowflake.Node
)

// snowflakeNode lazily initializes the process-wide snowflake node using the
// SNOWFLAKE_NODE environment variable (defaults to node 1).
func snowflakeNode() (*snowflake.Node, error) {
	var err error
	nodeOnce.Do(func() {
		id := int64(1)
		if v := os.Getenv("SNOWFLAKE_NODE"); v != "" {
			if parsed, perr := strconv.ParseInt(v, 10, 64); perr == nil {
				id = parsed
			}
		}
		node, err = snowflake.NewNode(id)
	})
	if node == nil && err == nil {
		// Do ran previously and failed; surface a stable error path by retrying.
		node, err = snowflake.NewNode(1)
	}
	return node, err
}

// NewKSUID generates a new globally unique KSUID string.
func NewKSUID() string {
	return ksuid.New().String()
}

// NewSnowflakeID generates a snowflake ID as int64, suitable for BIGINT
// primary keys.
func NewSnowflakeID() (int64, error) {
	n, err := snowflakeNode()
	if err != nil {
		return 0, err
	}
	return n.Generate().Int64(), nil
}

// NewSnowflakeString generates a snowflake ID in its string form, falling
// back to a KSUID when the node cannot be initialized.
func NewSnowflakeString() string {
	n, err := snowflakeNode()
	if err != nil {
		return NewKSUID()
	}
	return n.Generate().String()
}
