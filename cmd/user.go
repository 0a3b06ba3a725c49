package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/nsxzhou1114/campus-api/internal/database"
	"github.com/nsxzhou1114/campus-api/internal/model"
	"github.com/nsxzhou1114/campus-api/pkg/auth"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
)

// userCmd 用户管理命令
var userCmd = &cobra.Command{
	Use:   "user",
	Short: "用户管理命令",
	Long:  `用户管理相关的命令，包括创建用户、选课登记、签发令牌等`,
}

var userRole string
var userOrgUnit string

// createUserCmd 创建用户命令
var createUserCmd = &cobra.Command{
	Use:   "create [username]",
	Short: "创建用户",
	Long:  `交互式创建用户，角色和单位通过标志指定`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		createUser(args[0])
	},
}

// listUsersCmd 列出用户命令
var listUsersCmd = &cobra.Command{
	Use:   "list",
	Short: "列出用户",
	Long:  `列出系统中的用户`,
	Run: func(cmd *cobra.Command, args []string) {
		listUsers()
	},
}

// enrollCmd 选课登记命令
var enrollCmd = &cobra.Command{
	Use:   "enroll [username] [course]",
	Short: "登记选课",
	Long:  `为用户登记一门课程，按课程定向的公告据此匹配`,
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		enrollUser(args[0], args[1])
	},
}

// tokenCmd 签发令牌命令
var tokenCmd = &cobra.Command{
	Use:   "token [username]",
	Short: "为用户签发令牌对",
	Long:  `为指定用户签发一对访问/刷新令牌，联调和排查时使用`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		issueToken(args[0])
	},
}

func init() {
	createUserCmd.Flags().StringVar(&userRole, "role", model.RoleStudent, "用户角色 (student/lecturer/admin)")
	createUserCmd.Flags().StringVar(&userOrgUnit, "org-unit", "", "所属单位")

	userCmd.AddCommand(createUserCmd)
	userCmd.AddCommand(listUsersCmd)
	userCmd.AddCommand(enrollCmd)
	userCmd.AddCommand(tokenCmd)

	rootCmd.AddCommand(userCmd)
}

// createUser 创建用户
func createUser(username string) {
	if err := initializeSystem(); err != nil {
		fmt.Printf("系统初始化失败: %v\n", err)
		os.Exit(1)
	}

	switch userRole {
	case model.RoleStudent, model.RoleLecturer, model.RoleAdmin:
	default:
		fmt.Println("角色必须是 student、lecturer 或 admin")
		return
	}

	reader := bufio.NewReader(os.Stdin)

	fmt.Print("请输入姓名: ")
	name, _ := reader.ReadString('\n')
	name = strings.TrimSpace(name)

	fmt.Print("请输入邮箱: ")
	email, _ := reader.ReadString('\n')
	email = strings.TrimSpace(email)

	fmt.Print("请输入密码: ")
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		fmt.Printf("读取密码失败: %v\n", err)
		return
	}
	fmt.Println()

	fmt.Print("请确认密码: ")
	confirmBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		fmt.Printf("读取确认密码失败: %v\n", err)
		return
	}
	fmt.Println()

	if string(passwordBytes) != string(confirmBytes) {
		fmt.Println("两次输入的密码不一致")
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword(passwordBytes, bcrypt.DefaultCost)
	if err != nil {
		fmt.Printf("密码加密失败: %v\n", err)
		return
	}

	db := database.GetDB()

	var exists int64
	db.Model(&model.User{}).Where("username = ?", username).Count(&exists)
	if exists > 0 {
		fmt.Println("用户名已存在")
		return
	}

	user := &model.User{
		Username: username,
		Password: string(hashedPassword),
		Email:    email,
		Name:     name,
		Role:     userRole,
		OrgUnit:  userOrgUnit,
		Status:   1,
	}
	if err := db.Create(user).Error; err != nil {
		fmt.Printf("创建用户失败: %v\n", err)
		return
	}

	fmt.Printf("用户创建成功！ID: %d 用户名: %s 角色: %s\n", user.ID, username, userRole)
}

// listUsers 列出用户
func listUsers() {
	if err := initializeSystem(); err != nil {
		fmt.Printf("系统初始化失败: %v\n", err)
		os.Exit(1)
	}

	db := database.GetDB()
	var users []model.User

	if err := db.Select("id, username, name, email, role, org_unit, status, created_at").
		Order("created_at DESC").
		Limit(50).
		Find(&users).Error; err != nil {
		fmt.Printf("查询用户列表失败: %v\n", err)
		return
	}

	fmt.Printf("%-5s %-20s %-20s %-30s %-10s %-15s %-8s\n",
		"ID", "用户名", "姓名", "邮箱", "角色", "单位", "状态")
	fmt.Println(strings.Repeat("-", 110))

	for _, user := range users {
		status := "启用"
		if user.Status == 0 {
			status = "禁用"
		}
		fmt.Printf("%-5d %-20s %-20s %-30s %-10s %-15s %-8s\n",
			user.ID, user.Username, user.Name, user.Email, user.Role, user.OrgUnit, status)
	}
}

// enrollUser 为用户登记课程
func enrollUser(username, course string) {
	if err := initializeSystem(); err != nil {
		fmt.Printf("系统初始化失败: %v\n", err)
		os.Exit(1)
	}

	db := database.GetDB()

	var user model.User
	if err := db.Where("username = ?", username).First(&user).Error; err != nil {
		fmt.Printf("用户不存在: %v\n", err)
		return
	}

	enrollment := &model.Enrollment{UserID: user.ID, CourseCode: course}
	if err := db.Where(enrollment).FirstOrCreate(enrollment).Error; err != nil {
		fmt.Printf("登记选课失败: %v\n", err)
		return
	}

	fmt.Printf("用户 %s 已登记课程 %s\n", username, course)
}

// issueToken 为用户签发令牌对
func issueToken(username string) {
	if err := initializeSystem(); err != nil {
		fmt.Printf("系统初始化失败: %v\n", err)
		os.Exit(1)
	}

	db := database.GetDB()

	var user model.User
	if err := db.Where("username = ?", username).First(&user).Error; err != nil {
		fmt.Printf("用户不存在: %v\n", err)
		return
	}

	pair, err := auth.GenerateTokenPair(user.ID, user.Role)
	if err != nil {
		fmt.Printf("签发令牌失败: %v\n", err)
		return
	}

	fmt.Printf("access_token: %s\n", pair.AccessToken)
	fmt.Printf("refresh_token: %s\n", pair.RefreshToken)
	fmt.Printf("expires_in: %d\n", pair.ExpiresIn)
}
