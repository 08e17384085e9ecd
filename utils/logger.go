package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

var (
	InfoLogger  = log.New(os.Stdout, "INFO: ", log.Ldate|log.Ltime)
	ErrorLogger = log.New(os.Stderr, "ERROR: ", log.Ldate|log.Ltime)
	DebugLogger = log.New(io.Discard, "DEBUG: ", log.Ldate|log.Ltime)
)

// InitLoggers открывает файлы логов в каталоге dir и дублирует записи в stdout/stderr.
// Возвращает функцию закрытия файлов.
func InitLoggers(dir string, debug bool) (func(), error) {
	// Создаем директорию для логов, если она не существует
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	open := func(name string) (*os.File, error) {
		return os.OpenFile(filepath.Join(dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	}

	infoFile, err := open("info.log")
	if err != nil {
		return nil, fmt.Errorf("failed to open info log file: %w", err)
	}
	errorFile, err := open("error.log")
	if err != nil {
		infoFile.Close()
		return nil, fmt.Errorf("failed to open error log file: %w", err)
	}
	debugFile, err := open("debug.log")
	if err != nil {
		infoFile.Close()
		errorFile.Close()
		return nil, fmt.Errorf("failed to open debug log file: %w", err)
	}

	InfoLogger = log.New(io.MultiWriter(os.Stdout, infoFile), "INFO: ", log.Ldate|log.Ltime)
	ErrorLogger = log.New(io.MultiWriter(os.Stderr, errorFile), "ERROR: ", log.Ldate|log.Ltime)
	if debug {
		DebugLogger = log.New(debugFile, "DEBUG: ", log.Ldate|log.Ltime)
	}

	return func() {
		infoFile.Close()
		errorFile.Close()
		debugFile.Close()
	}, nil
}

// LogInfo логирует информационное сообщение
func LogInfo(format string, v ...interface{}) {
	_, file, line, _ := runtime.Caller(1)
	InfoLogger.Printf("%s:%d - %s", filepath.Base(file), line, fmt.Sprintf(format, v...))
}

// LogError логирует сообщение об ошибке
func LogError(format string, v ...interface{}) {
	logErrorAt(2, format, v...)
}

// LogErrorSkip логирует ошибку с местом вызова на skip кадров выше вызывающего.
// Нужен вспомогательным функциям, которые логируют за своего вызывающего.
func LogErrorSkip(skip int, format string, v ...interface{}) {
	logErrorAt(skip+2, format, v...)
}

func logErrorAt(depth int, format string, v ...interface{}) {
	_, file, line, _ := runtime.Caller(depth)
	ErrorLogger.Printf("%s:%d - %s", filepath.Base(file), line, fmt.Sprintf(format, v...))
}

// LogDebug логирует отладочное сообщение
func LogDebug(format string, v ...interface{}) {
	_, file, line, _ := runtime.Caller(1)
	DebugLogger.Printf("%s:%d - %s", filepath.Base(file), line, fmt.Sprintf(format, v...))
}

// LogOperation логирует результат операции и ее длительность
func LogOperation(operation string, startTime time.Time, err error) {
	duration := time.Since(startTime)
	_, file, line, _ := runtime.Caller(1)
	if err != nil {
		ErrorLogger.Printf("%s:%d - operation %s failed after %v: %v", filepath.Base(file), line, operation, duration, err)
		return
	}
	InfoLogger.Printf("%s:%d - operation %s completed in %v", filepath.Base(file), line, operation, duration)
}
