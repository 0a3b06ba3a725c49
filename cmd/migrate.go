package cmd

import (
	"fmt"
	"os"

	"github.com/nsxzhou1114/campus-api/internal/config"
	"github.com/nsxzhou1114/campus-api/internal/database"
	"github.com/nsxzhou1114/campus-api/internal/logger"
	"github.com/nsxzhou1114/campus-api/internal/model"
	"github.com/spf13/cobra"
)

// migrateCmd 数据库迁移命令
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "执行数据库迁移",
	Long:  `创建或更新数据库表结构`,
	Run: func(cmd *cobra.Command, args []string) {
		runMigrate()
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

// runMigrate 执行数据库迁移
func runMigrate() {
	if err := config.Init(configPath); err != nil {
		fmt.Printf("配置初始化失败: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(); err != nil {
		fmt.Printf("日志初始化失败: %v\n", err)
		os.Exit(1)
	}

	db := database.GetDB()
	if db == nil {
		fmt.Println("MySQL数据库连接失败")
		os.Exit(1)
	}

	if err := model.InitTables(db); err != nil {
		fmt.Printf("数据库迁移失败: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("数据库迁移完成")
}
