package idgen

import (
	"fmt"
	"sync"
	"time"

	sf "github.com/bwmarrin/snowflake"
)

var (
	node     *sf.Node
	nodeOnce sync.Once
)

// Init 初始化雪花算法节点
// startTime: 起始时间，格式："2006-01-02"
// machineID: 机器ID (0-1023)
func Init(startTime string, machineID int64) error {
	var initErr error
	nodeOnce.Do(func() {
		st, err := time.Parse("2006-01-02", startTime)
		if err != nil {
			initErr = fmt.Errorf("解析起始时间失败: %v", err)
			return
		}

		sf.Epoch = st.UnixNano() / 1000000

		n, err := sf.NewNode(machineID)
		if err != nil {
			initErr = fmt.Errorf("创建雪花节点失败: %v", err)
			return
		}
		node = n
	})
	return initErr
}

// GenerateID 生成唯一ID
// 同一毫秒内生成的ID严格递增，适合作为消息的排序副键
func GenerateID() (int64, error) {
	if node == nil {
		return 0, fmt.Errorf("雪花节点未初始化")
	}
	return node.Generate().Int64(), nil
}
