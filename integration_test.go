package main

import (
	"bufio"
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"securebank/internal/config"
	"securebank/internal/server"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type IntegrationTestSuite struct {
	suite.Suite
	pgContainer    *postgres.PostgresContainer
	serverInstance *server.Server
	serverPort     string
	dbConnStr      string

	accountNumber string
}

func (suite *IntegrationTestSuite) SetupSuite() {
	ctx := context.Background()

	pgContainer, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15-alpine"),
		postgres.WithDatabase("securebank"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Second)),
	)
	if err != nil {
		suite.T().Fatalf("Failed to start postgres container: %s", err)
	}
	suite.pgContainer = pgContainer

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		suite.T().Fatalf("Failed to get connection string: %s", err)
	}
	suite.dbConnStr = connStr

	if err := suite.runMigrations(); err != nil {
		suite.T().Fatalf("Failed to run migrations: %s", err)
	}

	if err := suite.startApplicationServer(); err != nil {
		suite.T().Fatalf("Failed to start application server: %s", err)
	}
}

func (suite *IntegrationTestSuite) runMigrations() error {
	db, err := sql.Open("postgres", suite.dbConnStr)
	if err != nil {
		return err
	}
	defer db.Close()

	migrationFiles, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	sort.Slice(migrationFiles, func(i, j int) bool {
		return migrationFiles[i].Name() < migrationFiles[j].Name()
	})

	for _, file := range migrationFiles {
		if !strings.HasSuffix(file.Name(), ".sql") {
			continue
		}
		migrationSQL, err := migrationsFS.ReadFile(filepath.Join("migrations", file.Name()))
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", file.Name(), err)
		}
		if _, err := db.Exec(string(migrationSQL)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", file.Name(), err)
		}
	}

	return nil
}

func (suite *IntegrationTestSuite) startApplicationServer() error {
	ctx := context.Background()

	host, err := suite.pgContainer.Host(ctx)
	if err != nil {
		return err
	}
	mappedPort, err := suite.pgContainer.MappedPort(ctx, "5432")
	if err != nil {
		return err
	}

	cfg := &config.Config{
		DBHost:     host,
		DBPort:     mappedPort.Port(),
		DBUser:     "postgres",
		DBPassword: "password",
		DBName:     "securebank",
		ServerPort: "0",
		HealthPort: "0",
	}

	serverInstance, port, err := server.StartServer(cfg)
	if err != nil {
		return err
	}

	suite.serverInstance = serverInstance
	suite.serverPort = port
	return nil
}

func (suite *IntegrationTestSuite) TearDownSuite() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if suite.serverInstance != nil {
		suite.serverInstance.Stop(ctx)
	}
	if suite.pgContainer != nil {
		if err := suite.pgContainer.Terminate(ctx); err != nil {
			suite.T().Logf("Failed to terminate postgres container: %s", err)
		}
	}
}

// protocolClient is a minimal line-protocol client for the tests.
type protocolClient struct {
	t      *testing.T
	conn   net.Conn
	reader *bufio.Reader
}

func (suite *IntegrationTestSuite) dial() *protocolClient {
	conn, err := net.Dial("tcp", "localhost:"+suite.serverPort)
	require.NoError(suite.T(), err)
	suite.T().Cleanup(func() { conn.Close() })
	return &protocolClient{t: suite.T(), conn: conn, reader: bufio.NewReader(conn)}
}

func (c *protocolClient) sendLine(line string) {
	c.t.Helper()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	_, err := fmt.Fprintf(c.conn, "%s\n", line)
	require.NoError(c.t, err)
}

func (c *protocolClient) readLine() string {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	reply, err := c.reader.ReadString('\n')
	require.NoError(c.t, err)
	return strings.TrimSuffix(reply, "\n")
}

// send writes one command and reads the single reply line.
func (c *protocolClient) send(line string) string {
	c.t.Helper()
	c.sendLine(line)
	return c.readLine()
}

// sendForLines writes one command and reads a reply whose payload spans
// extra lines, as the TRANSACTIONS reply does.
func (c *protocolClient) sendForLines(line string, extra int) []string {
	c.t.Helper()
	c.sendLine(line)
	lines := make([]string, 0, extra+1)
	for i := 0; i < extra+1; i++ {
		lines = append(lines, c.readLine())
	}
	return lines
}

func (suite *IntegrationTestSuite) login(c *protocolClient, username, password string) string {
	reply := c.send("LOGIN:" + username + ":" + password)
	require.True(suite.T(), strings.HasPrefix(reply, "SUCCESS: Logged in. Account: "), "unexpected login reply %q", reply)
	return strings.TrimPrefix(reply, "SUCCESS: Logged in. Account: ")
}

func (suite *IntegrationTestSuite) stepHealthCheck() {
	resp, err := http.Get("http://localhost:" + suite.serverInstance.GetHealthPort() + "/health")
	require.NoError(suite.T(), err)
	defer resp.Body.Close()

	assert.Equal(suite.T(), http.StatusOK, resp.StatusCode)

	var healthResp map[string]interface{}
	err = json.NewDecoder(resp.Body).Decode(&healthResp)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "healthy", healthResp["status"])
}

func (suite *IntegrationTestSuite) stepRegisterLoginBalance() {
	c := suite.dial()

	assert.Equal(suite.T(), "SUCCESS: Registration successful", c.send("REGISTER:alice:secret1"))

	suite.accountNumber = suite.login(c, "alice", "secret1")
	assert.Len(suite.T(), suite.accountNumber, 10)

	assert.Equal(suite.T(), "SUCCESS: Current balance: 0.00", c.send("BALANCE"))
}

func (suite *IntegrationTestSuite) stepAuthGate() {
	c := suite.dial()

	for _, line := range []string{"DEPOSIT:10.00", "WITHDRAW:10.00", "BALANCE", "TRANSACTIONS"} {
		assert.Equal(suite.T(), "ERROR: Authentication required", c.send(line), "line %q", line)
	}

	// None of the gated commands may have touched the account.
	logged := suite.dial()
	suite.login(logged, "alice", "secret1")
	assert.Equal(suite.T(), "SUCCESS: Current balance: 0.00", logged.send("BALANCE"))
}

func (suite *IntegrationTestSuite) stepDeposit() {
	c := suite.dial()
	suite.login(c, "alice", "secret1")

	assert.Equal(suite.T(), "SUCCESS: Deposited 100.00", c.send("DEPOSIT:100.00"))
	assert.Equal(suite.T(), "SUCCESS: Current balance: 100.00", c.send("BALANCE"))
}

func (suite *IntegrationTestSuite) stepOverdraftRejected() {
	c := suite.dial()
	suite.login(c, "alice", "secret1")

	assert.Equal(suite.T(), "ERROR: Withdrawal failed", c.send("WITHDRAW:150.00"))
	assert.Equal(suite.T(), "SUCCESS: Current balance: 100.00", c.send("BALANCE"))
}

func (suite *IntegrationTestSuite) stepConcurrentWithdrawals() {
	first := suite.dial()
	second := suite.dial()
	suite.login(first, "alice", "secret1")
	suite.login(second, "alice", "secret1")

	// Two concurrent 60.00 withdrawals against a 100.00 balance: exactly
	// one may pass the conditional update.
	var wg sync.WaitGroup
	replies := make([]string, 2)
	for i, c := range []*protocolClient{first, second} {
		wg.Add(1)
		go func(i int, c *protocolClient) {
			defer wg.Done()
			c.sendLine("WITHDRAW:60.00")
			replies[i] = c.readLine()
		}(i, c)
	}
	wg.Wait()

	successes := 0
	for _, reply := range replies {
		switch reply {
		case "SUCCESS: Withdrew 60.00":
			successes++
		case "ERROR: Withdrawal failed":
		default:
			suite.T().Fatalf("unexpected withdrawal reply %q", reply)
		}
	}
	assert.Equal(suite.T(), 1, successes, "exactly one concurrent withdrawal may succeed")
	assert.Equal(suite.T(), "SUCCESS: Current balance: 40.00", first.send("BALANCE"))
}

func (suite *IntegrationTestSuite) stepTransactionHistory() {
	c := suite.dial()
	suite.login(c, "alice", "secret1")

	// One deposit and one successful withdrawal so far.
	lines := c.sendForLines("TRANSACTIONS", 2)
	require.Len(suite.T(), lines, 3)
	assert.Equal(suite.T(), "TRANSACTIONS:", lines[0])

	var previous time.Time
	wantKinds := []string{"DEPOSIT", "WITHDRAW"}
	wantAmounts := []string{"100.00", "60.00"}
	for i, line := range lines[1:] {
		fields := strings.Split(line, ",")
		require.Len(suite.T(), fields, 3, "history line %q", line)

		ts, err := time.Parse(time.RFC3339, fields[0])
		require.NoError(suite.T(), err, "history line %q", line)
		assert.False(suite.T(), ts.Before(previous), "history must be oldest first")
		previous = ts

		assert.Equal(suite.T(), wantKinds[i], fields[1])
		suite.assertDecimalEqual(wantAmounts[i], fields[2])
	}
}

func (suite *IntegrationTestSuite) stepDuplicateRegistration() {
	c := suite.dial()

	assert.Equal(suite.T(), "ERROR: Registration failed", c.send("REGISTER:alice:other"))

	// The original credentials and account still stand.
	number := suite.login(c, "alice", "secret1")
	assert.Equal(suite.T(), suite.accountNumber, number)
	assert.Equal(suite.T(), "SUCCESS: Current balance: 40.00", c.send("BALANCE"))
}

func (suite *IntegrationTestSuite) stepWrongPassword() {
	c := suite.dial()

	assert.Equal(suite.T(), "ERROR: Invalid password", c.send("LOGIN:alice:wrongpass"))
	assert.Equal(suite.T(), "ERROR: Authentication required", c.send("BALANCE"))

	assert.Equal(suite.T(), "ERROR: User not found", c.send("LOGIN:nobody:secret1"))
}

func (suite *IntegrationTestSuite) stepInvalidInput() {
	c := suite.dial()

	assert.Equal(suite.T(), "ERROR: Invalid command", c.send("NONSENSE"))
	assert.Equal(suite.T(), "ERROR: Usage - REGISTER:username:password", c.send("REGISTER:bob"))
	assert.Equal(suite.T(), "ERROR: Username must be 3-20 alphanumeric characters", c.send("REGISTER:x:secret1"))

	// The connection survives malformed input.
	assert.Equal(suite.T(), "SUCCESS: Registration successful", c.send("REGISTER:bob42:secret2"))
}

func (suite *IntegrationTestSuite) stepExitClosesConnection() {
	c := suite.dial()
	c.sendLine("EXIT")

	c.conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, err := c.reader.ReadString('\n')
	assert.Error(suite.T(), err, "server must close the connection after EXIT")
}

func (suite *IntegrationTestSuite) assertDecimalEqual(expected, actual string) {
	suite.T().Helper()
	expectedDec, err := decimal.NewFromString(expected)
	require.NoError(suite.T(), err)
	actualDec, err := decimal.NewFromString(actual)
	require.NoError(suite.T(), err)
	assert.True(suite.T(), expectedDec.Equal(actualDec),
		"decimal values not equal: expected %s, got %s", expected, actual)
}

func (suite *IntegrationTestSuite) TestFlow() {
	suite.stepHealthCheck()
	suite.stepRegisterLoginBalance()
	suite.stepAuthGate()
	suite.stepDeposit()
	suite.stepOverdraftRejected()
	suite.stepConcurrentWithdrawals()
	suite.stepTransactionHistory()
	suite.stepDuplicateRegistration()
	suite.stepWrongPassword()
	suite.stepInvalidInput()
	suite.stepExitClosesConnection()
}

func TestIntegrationTestSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	suite.Run(t, new(IntegrationTestSuite))
}
